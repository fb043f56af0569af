package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint at the given TTL ("5m" or "1h"). The pipeline's system
// prompts are stable across listings and sectors, so every call after the
// first within the TTL reads the prompt from cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
