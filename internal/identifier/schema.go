package identifier

// PHIIdentificationResult is one raw entity as reported by the LLM, before
// post-processing. Fields mirror the structured-output schema the model is
// asked to conform to; positions and type spellings are not yet trusted.
type PHIIdentificationResult struct {
	EntityText            string  `json:"entity_text"`
	PHIType               string  `json:"phi_type"`
	CustomTypeName        string  `json:"custom_type_name,omitempty"`
	CustomTypeDescription string  `json:"custom_type_description,omitempty"`
	StartPosition         int     `json:"start_position"`
	EndPosition           int     `json:"end_position"`
	Confidence            float64 `json:"confidence"`
	Reason                string  `json:"reason"`
	RegulationSource      string  `json:"regulation_source,omitempty"`
	MaskingAction         string  `json:"masking_action,omitempty"`
}

// PHIDetectionResponse is the full structured-output schema requested from
// the LLM. TotalEntities and HasPHI are never trusted from the model: the
// identifier ignores both and works from Entities alone.
type PHIDetectionResponse struct {
	Entities      []PHIIdentificationResult `json:"entities"`
	TotalEntities int                       `json:"total_entities"`
	HasPHI        bool                      `json:"has_phi"`
}
