package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/util"
	"github.com/hupe1980/chatmesh/tool"
)

type clockArgs struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone, e.g. Asia/Shanghai; defaults to UTC"`
}

type searchArgs struct {
	Query string `json:"query" description:"What to look for"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of documents"`
}

// builtinTools are offered to the model by ChatWithTools.
func builtinTools(searcher core.Searcher, topK int) []tool.Tool {
	tools := []tool.Tool{
		tool.NewFunctionToolFromStruct("current_time", "Returns the current date and time.", clockArgs{},
			func(_ context.Context, args map[string]any) (any, error) {
				var in clockArgs
				if err := util.DecodeArgs(args, &in); err != nil {
					return nil, err
				}
				loc := time.UTC
				if in.Timezone != "" {
					l, err := time.LoadLocation(in.Timezone)
					if err != nil {
						return nil, fmt.Errorf("unknown time zone %q", in.Timezone)
					}
					loc = l
				}
				return time.Now().In(loc).Format(time.RFC3339), nil
			}),
	}
	if searcher == nil {
		return tools
	}
	return append(tools, tool.NewFunctionToolFromStruct("search_documents",
		"Searches the research document collection and returns the best matches.", searchArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			var in searchArgs
			if err := util.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Limit <= 0 {
				in.Limit = topK
			}
			docs, err := searcher.Search(ctx, in.Query, in.Limit)
			if err != nil {
				return nil, err
			}
			type hit struct {
				ID       string  `json:"id"`
				Content  string  `json:"content"`
				Score    float64 `json:"score"`
				Audience string  `json:"audience,omitempty"`
			}
			hits := make([]hit, 0, len(docs))
			for _, d := range docs {
				hits = append(hits, hit{ID: d.ID, Content: d.Content, Score: d.Score, Audience: d.Audience()})
			}
			return hits, nil
		}))
}
