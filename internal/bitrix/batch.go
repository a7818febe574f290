package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CommandParams are the list-method parameters a batched command encodes.
// Empty filter/extra values are skipped, matching single-call semantics.
type CommandParams struct {
	Filter map[string]any
	Order  map[string]string
	Select []string
	Start  *int
	Extra  map[string]any
}

// EncodeCommand renders one method call as the query-string command the
// batch endpoint expects. Map keys are sorted so the encoding is stable.
func EncodeCommand(method string, params CommandParams) string {
	parts := make([]string, 0, 8)

	appendPair := func(key, value string) {
		parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	for _, k := range sortedKeys(params.Filter) {
		v := params.Filter[k]
		s := stringify(v)
		if s == "" {
			continue
		}
		appendPair(fmt.Sprintf("filter[%s]", k), s)
	}

	orderKeys := make([]string, 0, len(params.Order))
	for k := range params.Order {
		orderKeys = append(orderKeys, k)
	}
	sort.Strings(orderKeys)
	for _, k := range orderKeys {
		appendPair(fmt.Sprintf("order[%s]", k), params.Order[k])
	}

	for _, s := range params.Select {
		appendPair("select[]", s)
	}

	for _, k := range sortedKeys(params.Extra) {
		s := stringify(params.Extra[k])
		if s == "" {
			continue
		}
		appendPair(k, s)
	}

	if params.Start != nil {
		appendPair("start", fmt.Sprintf("%d", *params.Start))
	}

	return method + "?" + strings.Join(parts, "&")
}

type batchCaller interface {
	CallBatch(ctx context.Context, cmds map[string]string, halt bool) (BatchResult, error)
}

// paginatePartitions drains several independent paginated list queries
// through batched calls. Each partition keeps its own start cursor; a
// partition whose next cursor comes back absent, null or false is done.
// buildCommand renders one partition's query at a cursor, collect consumes
// one partition's page payload. A gateway error aborts the whole fetch.
func paginatePartitions(
	ctx context.Context,
	caller batchCaller,
	partitions []int,
	buildCommand func(partition, start int) string,
	collect func(partition int, page json.RawMessage) error,
) error {
	cursors := make(map[int]int, len(partitions))
	done := make(map[int]bool, len(partitions))
	for _, p := range partitions {
		cursors[p] = 0
	}

	for len(done) < len(partitions) {
		cmds := make(map[string]string, len(partitions))
		keys := make(map[int]string, len(partitions))
		for _, p := range partitions {
			if done[p] {
				continue
			}
			key := fmt.Sprintf("sec%d_s%d", p, cursors[p])
			keys[p] = key
			cmds[key] = buildCommand(p, cursors[p])
		}
		if len(cmds) == 0 {
			break
		}

		batch, err := caller.CallBatch(ctx, cmds, false)
		if err != nil {
			return err
		}

		for _, p := range partitions {
			key, ok := keys[p]
			if !ok {
				continue
			}
			page, ok := batch.Result[key]
			if !ok {
				// No answer for the partition this round; treat as drained.
				done[p] = true
				continue
			}
			if err := collect(p, page); err != nil {
				return err
			}
			next, more := nextCursor(batch.ResultNext[key])
			if !more {
				done[p] = true
				continue
			}
			cursors[p] = next
		}
	}

	return nil
}

// nextCursor interprets a per-key cursor value. Absent, null and false all
// mean the partition is exhausted.
func nextCursor(raw json.RawMessage) (int, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "false" {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
