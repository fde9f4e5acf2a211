package rank

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

func chunk(doc string, page int, text string) models.Chunk {
	return models.Chunk{ChunkID: fmt.Sprintf("%s-%d", doc, page), DocumentID: doc, DocumentName: doc + ".pdf", Text: text, PageNumber: page}
}

func TestDeadlineScenario(t *testing.T) {
	chunks := []models.Chunk{
		chunk("d1", 2, "The deadline is March 1st."),
		chunk("d1", 5, "Unrelated text about weather."),
	}
	got := FindRelevantChunks("What is the deadline?", chunks, 3, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].PageNumber)
}

func TestExactBeatsPartial(t *testing.T) {
	terms := uniqueTokens("contract renewal clause", 2)
	exact := Score(terms, "The contract has a renewal date.")
	partial := Score(terms, "Clauses were drafted later.")
	assert.Greater(t, partial, 0.0)
	assert.Greater(t, exact, partial)
}

func TestExactCountCapped(t *testing.T) {
	terms := []string{"tax"}
	assert.Equal(t, 2.0*3+15, Score(terms, "tax tax tax tax tax"))
	assert.Equal(t, 2.0+15, Score(terms, "Tax is due."))
}

func TestRootPartialCredit(t *testing.T) {
	// "payments" -> "payment", matched by prefix "payment" in "payment" and "paymentplan"
	assert.Equal(t, 2.0+7.5, Score([]string{"payments"}, "payment and paymentplan and payment"))
	// short words never get partial credit
	assert.Equal(t, 0.0, Score([]string{"cars"}, "car"))
}

func TestRootSuffixOrder(t *testing.T) {
	assert.Equal(t, "read", Root("reading"))
	assert.Equal(t, "match", Root("matches"))
	assert.Equal(t, "sign", Root("signed"))
	assert.Equal(t, "bu", Root("bus"))
	assert.Equal(t, "deadline", Root("deadline"))
}

func TestNoOverlapReturnsEmpty(t *testing.T) {
	chunks := []models.Chunk{chunk("d1", 1, "Apples and oranges."), chunk("d2", 1, "Bananas grow here.")}
	assert.Empty(t, FindRelevantChunks("zebra giraffe?", chunks, 3, nil))
	assert.Empty(t, FindRelevantChunks("", chunks, 3, nil))
}

func TestShortQueryWordsIgnored(t *testing.T) {
	chunks := []models.Chunk{chunk("d1", 1, "it is on me")}
	assert.Empty(t, FindRelevantChunks("is it on", chunks, 3, nil))
}

func TestDiversityCap(t *testing.T) {
	var chunks []models.Chunk
	for _, doc := range []string{"a", "b", "c"} {
		for i := 0; i < 10; i++ {
			chunks = append(chunks, chunk(doc, i+1, "budget forecast revenue"))
		}
	}
	got := FindRelevantChunks("budget forecast revenue", chunks, 10, nil)
	require.Len(t, got, 10)
	per := map[string]int{}
	for _, c := range got {
		per[c.DocumentID]++
	}
	for doc, n := range per {
		assert.LessOrEqual(t, n, 7, doc)
	}
	assert.Equal(t, 7, per["a"])
	assert.Equal(t, 3, per["b"])
}

func TestRankOrderStable(t *testing.T) {
	chunks := []models.Chunk{
		chunk("d", 1, "budget"),
		chunk("d", 2, "budget forecast"),
		chunk("d", 3, "budget"),
		chunk("d", 4, "nothing"),
	}
	ranked := Rank("budget forecast", chunks)
	require.Len(t, ranked, 3)
	assert.Equal(t, 2, ranked[0].Chunk.PageNumber)
	assert.Equal(t, 1, ranked[1].Chunk.PageNumber)
	assert.Equal(t, 3, ranked[2].Chunk.PageNumber)
}

func TestDefaultTopK(t *testing.T) {
	var chunks []models.Chunk
	for i := 0; i < 6; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("d%d", i), 1, "invoice total"))
	}
	assert.Len(t, FindRelevantChunks("invoice", chunks, 0, nil), DefaultTopK)
}

func TestExpandQuery(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "Who signed the lease agreement?"},
		{Role: models.RoleAssistant, Content: "Jordan Smith signed it on page 3."},
		{Role: models.RoleUser, Content: "When does the tenant contract expire?"},
		{Role: models.RoleAssistant, Content: "In December."},
	}
	got := ExpandQuery("what about renewal?", history)
	assert.True(t, strings.HasPrefix(got, "what about renewal?"))
	assert.Contains(t, got, "signed")
	assert.Contains(t, got, "agreement")
	assert.Contains(t, got, "tenant")
	assert.NotContains(t, got, "jordan")
	assert.Equal(t, "what about renewal?", ExpandQuery("what about renewal?", nil))
}

func TestExpandQueryCapsWords(t *testing.T) {
	history := []models.Message{{Role: models.RoleUser, Content: "alpha1 bravo2 charlie delta4 echo55 foxtrot golfer hotel8"}}
	got := ExpandQuery("question", history)
	assert.Len(t, strings.Fields(got), 1+5)
}

func TestExpansionLetsFollowUpMatch(t *testing.T) {
	chunks := []models.Chunk{chunk("d", 4, "The warranty covers parts for two years."), chunk("d", 9, "Shipping is free.")}
	history := []models.Message{{Role: models.RoleUser, Content: "Explain the warranty terms"}}
	got := FindRelevantChunks("how long?", chunks, 3, history)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].PageNumber)
}
