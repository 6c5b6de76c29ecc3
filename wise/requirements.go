package wise

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/liamcoop/wisepay/requirements"
)

// FetchRequirements returns the recipient requirements for a corridor
// exactly as the provider sent them.
func (c *Client) FetchRequirements(ctx context.Context, corridor Corridor) (requirements.Document, error) {
	q := url.Values{}
	q.Set("source", corridor.Source)
	q.Set("target", corridor.Target)
	q.Set("sourceAmount", strconv.FormatFloat(corridor.Amount, 'f', -1, 64))

	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/v1/account-requirements", q, nil, &buf); err != nil {
		return requirements.Document{}, err
	}
	return requirements.DecodeBytes(buf.Bytes())
}
