package api

import (
	"context"
	"fmt"
)

// --- Group Methods ---

// GroupPath is the resource path of a confirmed group.
func GroupPath(number int) string {
	return fmt.Sprintf("/api/groups/%d", number)
}

// GroupTalksPath is the member-talks sub-resource of a confirmed group.
func GroupTalksPath(number int) string {
	return GroupPath(number) + "/talks"
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	data, err := c.get(ctx, "/api/groups")
	if err != nil {
		return nil, err
	}
	return decodeList[Group](data)
}

func (c *Client) CreateGroup(ctx context.Context, input CreateGroupInput) (*Group, error) {
	if input.Talks == nil {
		input.Talks = []int{}
	}
	data, err := c.post(ctx, "/api/groups", input)
	if err != nil {
		return nil, err
	}
	return decodeOne[Group](data)
}

func (c *Client) UpdateGroup(ctx context.Context, number int, input UpdateGroupInput) (*Group, error) {
	data, err := c.put(ctx, GroupPath(number), input)
	if err != nil {
		return nil, err
	}
	return decodeOne[Group](data)
}

func (c *Client) DeleteGroup(ctx context.Context, number int) error {
	return c.del(ctx, GroupPath(number))
}

func (c *Client) ListGroupTalks(ctx context.Context, number int) ([]Talk, error) {
	data, err := c.get(ctx, GroupTalksPath(number))
	if err != nil {
		return nil, err
	}
	return decodeList[Talk](data)
}
