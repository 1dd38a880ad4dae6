package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/capability/capabilitytest"
	"github.com/jonathan/apply-agent/internal/schemas"
)

const listing = "https://jobs.example.com/search?q=go"

func nextAnswer(url any) map[string]any {
	return map[string]any{"hasNextPage": url != nil, "nextPageUrl": url, "reasoning": "pager"}
}

func TestNextPage_InferenceFirst(t *testing.T) {
	page := &capabilitytest.Page{}
	page.On(schemas.NextPage, nextAnswer("https://jobs.example.com/search?q=go&page=2"))

	res := New().NextPage(context.Background(), page, listing, 1, 3)
	assert.True(t, res.HasMorePages)
	assert.Equal(t, "https://jobs.example.com/search?q=go&page=2", res.NextPageURL)
	assert.Equal(t, SourceInference, res.Source)
	assert.Zero(t, page.EvalCount(), "selectors are not evaluated when inference answers")
}

func TestNextPage_HardStopAtBound(t *testing.T) {
	page := &capabilitytest.Page{}
	page.On(schemas.NextPage, nextAnswer("https://jobs.example.com/search?q=go&page=3"))

	res := New().NextPage(context.Background(), page, listing, 2, 2)
	assert.False(t, res.HasMorePages)
	assert.Empty(t, res.NextPageURL)
	assert.Equal(t, SourceBound, res.Source)
	assert.Empty(t, page.Calls())
	assert.Zero(t, page.EvalCount())
}

func TestNextPage_EchoedURLIsNoNextPage(t *testing.T) {
	page := &capabilitytest.Page{}
	page.On(schemas.NextPage, nextAnswer(listing+"#results"))

	res := New(WithSelectors(nil)).NextPage(context.Background(), page, listing, 1, 5)
	assert.False(t, res.HasMorePages)
	assert.Empty(t, res.NextPageURL)
}

func TestNextPage_SelectorFallback(t *testing.T) {
	page := &capabilitytest.Page{
		Eval: func(_ string, args any) (any, error) {
			sels, ok := args.([]string)
			require.True(t, ok)
			require.NotEmpty(t, sels)
			return []map[string]string{
				{"selector": `a[rel="next"]`, "href": listing},
				{"selector": `text=Next`, "href": "javascript:void(0)"},
				{"selector": `li.next a`, "href": "https://jobs.example.com/search?q=go&page=2"},
			}, nil
		},
	}
	page.On(schemas.NextPage, nextAnswer(nil))

	res := New().NextPage(context.Background(), page, listing, 1, 5)
	assert.True(t, res.HasMorePages)
	assert.Equal(t, "https://jobs.example.com/search?q=go&page=2", res.NextPageURL)
	assert.Equal(t, SourceSelector, res.Source)
	assert.Equal(t, "li.next a", res.Selector)
}

func TestNextPage_InferenceErrorFallsBack(t *testing.T) {
	page := &capabilitytest.Page{
		Eval: func(string, any) (any, error) {
			return []map[string]string{{"selector": "a.next", "href": "https://jobs.example.com/p/2"}}, nil
		},
	}
	page.Fail(schemas.NextPage, capability.NewError(capability.KindExtractionTimeout, "extract", "", nil))

	res := New().NextPage(context.Background(), page, listing, 1, 5)
	assert.True(t, res.HasMorePages)
	assert.Equal(t, SourceSelector, res.Source)
}

func TestNextPage_ScriptErrorEndsChain(t *testing.T) {
	page := &capabilitytest.Page{
		Eval: func(string, any) (any, error) {
			return nil, capability.NewError(capability.KindScript, "evaluate", "detached frame", errors.New("x"))
		},
	}
	page.On(schemas.NextPage, nextAnswer(nil))

	res := New().NextPage(context.Background(), page, listing, 1, 5)
	assert.False(t, res.HasMorePages)
	assert.Equal(t, SourceNone, res.Source)
}

func TestNextPage_ChainNeverExceedsBound(t *testing.T) {
	for _, k := range []int{1, 2, 4} {
		page := &capabilitytest.Page{}
		page.On(schemas.NextPage,
			nextAnswer("https://jobs.example.com/p/2"),
			nextAnswer("https://jobs.example.com/p/3"),
			nextAnswer("https://jobs.example.com/p/4"),
			nextAnswer("https://jobs.example.com/p/5"),
			nextAnswer("https://jobs.example.com/p/6"),
		)
		c := New()

		current, pageNo, transitions := listing, 1, 0
		for {
			res := c.NextPage(context.Background(), page, current, pageNo, k)
			if !res.HasMorePages {
				break
			}
			current = res.NextPageURL
			pageNo++
			transitions++
		}
		assert.LessOrEqual(t, transitions, k-1, "maxPages=%d", k)
		assert.Equal(t, k, pageNo)
		assert.Equal(t, k-1, page.CallCount(schemas.NextPage), "no call at the bound for maxPages=%d", k)
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		ok        bool
	}{
		{"absolute", "https://jobs.example.com/search?q=go&page=2", true},
		{"same page in other case", "https://JOBS.example.com/search?q=go", false},
		{"relative", "/search?page=2", false},
		{"javascript", "javascript:void(0)", false},
		{"empty", "", false},
		{"garbage", "::::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Accept(tt.candidate, listing)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
