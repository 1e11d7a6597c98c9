package catalog

const ProviderHuggingFace = "huggingface"

// DefaultProfiles is the built-in registry, served through the Hugging Face
// OpenAI-compatible router.
func DefaultProfiles() []ModelProfile {
	return []ModelProfile{
		{
			ID: "llama-3.2-3b", Category: CategoryGeneral,
			DisplayName: "Llama 3.2 3B", Description: "Efficient conversational model",
			CostClass: "low", LatencyClass: "fast",
			Provider: ProviderHuggingFace, UpstreamModel: "meta-llama/Llama-3.2-3B-Instruct",
		},
		{
			ID: "qwen-coder-7b", Category: CategoryCode,
			DisplayName: "Qwen 2.5 Coder 7B", Description: "Specialized coding assistant",
			CostClass: "medium", LatencyClass: "medium",
			Provider: ProviderHuggingFace, UpstreamModel: "Qwen/Qwen2.5-Coder-7B-Instruct",
		},
		{
			ID: "deepseek-coder", Category: CategoryCode,
			DisplayName: "DeepSeek Coder 6.7B", Description: "Secondary coding model",
			CostClass: "medium", LatencyClass: "medium",
			Provider: ProviderHuggingFace, UpstreamModel: "deepseek-ai/deepseek-coder-6.7b-instruct",
		},
		{
			ID: "qwen-math", Category: CategoryMath,
			DisplayName: "Qwen 2.5 Math 7B", Description: "Math problem solving",
			CostClass: "medium", LatencyClass: "medium",
			Provider: ProviderHuggingFace, UpstreamModel: "Qwen/Qwen2.5-Math-7B-Instruct",
		},
		{
			ID: "deepseek-r1", Category: CategoryReasoning,
			DisplayName: "DeepSeek R1 Distill 7B", Description: "Multi-step reasoning",
			CostClass: "high", LatencyClass: "slow",
			Provider: ProviderHuggingFace, UpstreamModel: "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B",
		},
		{
			ID: "llama-8b", Category: CategoryCreative,
			DisplayName: "Llama 3.1 8B", Description: "Creative writing",
			CostClass: "medium", LatencyClass: "medium",
			Provider: ProviderHuggingFace, UpstreamModel: "meta-llama/Llama-3.1-8B-Instruct",
		},
		{
			ID: "qwen-multilingual", Category: CategoryMultilingual,
			DisplayName: "Qwen 2.5 7B", Description: "Multilingual support",
			CostClass: "medium", LatencyClass: "medium",
			Provider: ProviderHuggingFace, UpstreamModel: "Qwen/Qwen2.5-7B-Instruct",
		},
		{
			ID: "mistral-7b", Category: CategoryFallback,
			DisplayName: "Mistral 7B", Description: "Fast, reliable last resort",
			CostClass: "low", LatencyClass: "fast",
			Provider: ProviderHuggingFace, UpstreamModel: "mistralai/Mistral-7B-Instruct-v0.3",
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultProfiles())
	if err != nil {
		panic(err)
	}
	return c
}
