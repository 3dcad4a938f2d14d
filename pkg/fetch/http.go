package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"clgen/pkg/session"
)

// HTTPSource downloads content files listed in a URL manifest, one URL per
// line. Blank lines and lines starting with # are skipped.
type HTTPSource struct{}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Run(ctx context.Context, target string, s *session.Session) <-chan Result {
	results := make(chan Result)

	go func() {
		defer close(results)

		urls, err := readManifest(target)
		if err != nil {
			results <- Result{Source: h.Name(), Error: err}
			return
		}

		for _, url := range urls {
			contents, err := h.download(ctx, s, url)
			result := Result{Source: h.Name(), Path: url, Contents: contents, Error: err}
			select {
			case results <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}

func (h *HTTPSource) download(ctx context.Context, s *session.Session, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bad url %s: %w", url, err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}

	return string(data), nil
}

func readManifest(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls found in manifest %s", path)
	}
	return urls, nil
}
