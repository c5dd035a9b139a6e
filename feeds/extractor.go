package feeds

import (
	"log"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"newsmith/types"
)

const (
	extractWorkers   = 5
	extractorTimeout = 30 * time.Second
)

// ExtractFullText fetches and extracts readable article text for each item
// using a worker pool. Extraction failures leave the item usable with its
// feed summary only.
func ExtractFullText(items []types.FeedItem) []types.FeedItem {
	out := make([]types.FeedItem, len(items))
	copy(out, items)

	var wg sync.WaitGroup
	indexes := make(chan int, len(out))

	for w := 0; w < extractWorkers; w++ {
		go func(workerID int) {
			for i := range indexes {
				text, err := extractOne(out[i].Link)
				if err != nil {
					log.Printf("[Worker %d] Failed to extract %s: %v", workerID, out[i].Link, err)
				} else {
					out[i].FullText = text
				}
				wg.Done()
			}
		}(w)
	}

	for i := range out {
		wg.Add(1)
		indexes <- i
	}
	wg.Wait()
	close(indexes)

	return out
}

func extractOne(link string) (string, error) {
	article, err := readability.FromURL(link, extractorTimeout)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}
