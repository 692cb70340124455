package api

import "context"

// ListUngroupedTalks returns every talk no group has claimed.
func (c *Client) ListUngroupedTalks(ctx context.Context) ([]Talk, error) {
	data, err := c.get(ctx, "/api/talks/ungrouped")
	if err != nil {
		return nil, err
	}
	return decodeList[Talk](data)
}
