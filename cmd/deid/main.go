// Command deid is a de-identification pipeline for medical records: it
// chunks documents, detects PHI with deterministic tools and an LLM
// identifier, masks the detected entities, and writes the results and a
// per-file report.
//
// Usage:
//
//	deid process notes/*.txt --output-dir data/output/results
//	deid process notes/ --resume --no-rag
//	deid evaluate samples.json
package main

import "ai-deid-pipeline/cmd/deid/cli"

func main() {
	cli.Execute()
}
