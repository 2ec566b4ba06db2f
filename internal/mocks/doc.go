// Package mocks provides shared test doubles for the generation boundary and
// the authentication service.
//
// Mocks expose function fields for each interface method; a nil field falls
// back to a deterministic default so tests only override what they assert on:
//
//	gen := &mocks.MockContentGenerator{
//	    GenerateImageFn: func(ctx context.Context, prompt string) (*generation.ImageRef, error) {
//	        return nil, generation.ErrTransientFailure
//	    },
//	}
package mocks
