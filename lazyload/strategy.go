package lazyload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/c360/perfkit/errors"
)

// Strategy fetches and decodes one resource kind.
type Strategy interface {
	Load(ctx context.Context, res Resource) ([]byte, error)
}

// defaultStrategies wires the closed type set to its fetch strategies.
// One entry per ResourceType; NewLoader rejects unknown types up front, so
// dispatch never misses.
func defaultStrategies(client *http.Client) map[ResourceType]Strategy {
	return map[ResourceType]Strategy{
		TypeImage:     &imageStrategy{client: client},
		TypeComponent: &textStrategy{client: client, kind: TypeComponent},
		TypeScript:    &textStrategy{client: client, kind: TypeScript},
		TypeStyle:     &textStrategy{client: client, kind: TypeStyle},
		TypeData:      &dataStrategy{client: client},
	}
}

// fetch issues the GET shared by all strategies, returning the body and
// content type. Non-2xx responses become HTTPErrors so classification can
// branch on status.
func fetch(ctx context.Context, client *http.Client, locator string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", errors.WrapPermanent(err, "lazyload", "fetch", "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", errors.WrapTransient(err, "lazyload", "fetch", "execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", errors.HTTPErrorFromResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.WrapTransient(err, "lazyload", "fetch", "read body")
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// imageStrategy fetches and validates image payloads.
type imageStrategy struct {
	client *http.Client
}

func (s *imageStrategy) Load(ctx context.Context, res Resource) ([]byte, error) {
	body, contentType, err := fetch(ctx, s.client, res.SourceLocator)
	if err != nil {
		return nil, err
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, errors.WrapPermanent(errors.ErrUnsupportedType, "lazyload", "Load",
			"decode image with content type "+contentType)
	}
	return body, nil
}

// textStrategy fetches script, style and component module sources. The
// host injects or evaluates the returned text itself.
type textStrategy struct {
	client *http.Client
	kind   ResourceType
}

func (s *textStrategy) Load(ctx context.Context, res Resource) ([]byte, error) {
	body, _, err := fetch(ctx, s.client, res.SourceLocator)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// dataStrategy fetches raw data, validating JSON payloads when the
// content type claims them.
type dataStrategy struct {
	client *http.Client
}

func (s *dataStrategy) Load(ctx context.Context, res Resource) ([]byte, error) {
	body, contentType, err := fetch(ctx, s.client, res.SourceLocator)
	if err != nil {
		return nil, err
	}
	if strings.Contains(contentType, "application/json") && !json.Valid(body) {
		return nil, errors.WrapPermanent(errors.ErrResourceFailed, "lazyload", "Load",
			"parse JSON payload")
	}
	return body, nil
}
