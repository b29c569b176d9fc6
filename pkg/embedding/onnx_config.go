package embedding

// DefaultONNXMaxTokens is the sequence length used when ONNXConfig.MaxTokens is unset.
const DefaultONNXMaxTokens = 256

// ONNXConfig describes a sentence-embedding model with BERT-style inputs
// (input_ids, attention_mask, token_type_ids) and one pooled output.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	// OutputName is the pooled output tensor; defaults to "output".
	OutputName string
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultONNXMaxTokens
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	return c
}
