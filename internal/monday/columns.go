package monday

import (
	"context"
	"encoding/json"
	"fmt"

	"boardmigrate/internal/pipeline"
)

type columnsEnvelope struct {
	Data struct {
		Boards []struct {
			Name    string `json:"name"`
			Columns []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
				Type  string `json:"type"`
			} `json:"columns"`
		} `json:"boards"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// BoardColumns returns the board's name and column metadata. Handy for
// finding the doc column id to configure.
func (c *Client) BoardColumns(ctx context.Context) (string, []pipeline.Column, error) {
	req := graphQLRequest{
		Query: fmt.Sprintf(
			"query {\n  boards (ids: %s) {\n    name\n    columns {\n      id\n      title\n      type\n    }\n  }\n}",
			c.cfg.BoardID),
	}

	body, err := c.do(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch board columns: %w", err)
	}

	var env columnsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("decode columns response: %w", err)
	}
	if len(env.Errors) > 0 {
		return "", nil, fmt.Errorf("fetch board columns: %s", env.Errors[0].Message)
	}
	if len(env.Data.Boards) == 0 {
		return "", nil, fmt.Errorf("board %s not found", c.cfg.BoardID)
	}

	board := env.Data.Boards[0]
	columns := make([]pipeline.Column, 0, len(board.Columns))
	for _, col := range board.Columns {
		columns = append(columns, pipeline.Column{ID: col.ID, Title: col.Title, Type: col.Type})
	}
	return board.Name, columns, nil
}
