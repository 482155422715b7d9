// Package acquire reads the raw content of a data source locator.
//
// Locators starting with http:// or https:// are fetched over the network;
// everything else (including file:// URLs) is read from the local filesystem,
// relative paths being resolved against the working directory.
//
// Example usage:
//
//	fetcher := acquire.NewFetcher(acquire.Options{Timeout: 30 * time.Second}, logger)
//	content, err := fetcher.Fetch(ctx, "https://example.org/data.ttl")
//	if err != nil {
//	    var aerr *acquire.Error
//	    if errors.As(err, &aerr) && aerr.Kind == acquire.KindTimeout {
//	        // deadline expired
//	    }
//	}
package acquire
