package findings

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factcheck/api/internal/store"
)

func at(minute int) *time.Time {
	t := time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC)
	return &t
}

func finding(id, claimID, producer, verdict string, updatedAt *time.Time) store.Finding {
	return store.Finding{ID: id, ClaimID: claimID, ProducedBy: producer, Verdict: verdict, UpdatedAt: updatedAt}
}

func TestEditorBeatsNewerPipelineFinding(t *testing.T) {
	in := []store.Finding{
		finding("f1", "clm_1", store.ProducedByEditor, "refutes", at(0)),
		finding("f2", "clm_1", store.ProducedByPipeline, "supports", at(30)),
	}
	for _, items := range [][]store.Finding{in, {in[1], in[0]}} {
		out := SelectEffective(items)
		require.Len(t, out, 1)
		assert.Equal(t, "f1", out[0].ID)
	}
}

func TestLaterFindingWinsWithinProducerClass(t *testing.T) {
	out := SelectEffective([]store.Finding{
		finding("f2", "clm_1", store.ProducedByPipeline, "supports", at(20)),
		finding("f1", "clm_1", store.ProducedByPipeline, "unclear", at(10)),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "f2", out[0].ID)
}

func TestMissingTimestampNeverDisplacesDatedFinding(t *testing.T) {
	out := SelectEffective([]store.Finding{
		finding("dated", "clm_1", store.ProducedByPipeline, "supports", at(1)),
		finding("undated", "clm_1", store.ProducedByPipeline, "refutes", nil),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "dated", out[0].ID)

	// An undated editor finding still outranks any pipeline finding.
	out = SelectEffective([]store.Finding{
		finding("pipe", "clm_1", store.ProducedByPipeline, "supports", at(59)),
		finding("edit", "clm_1", store.ProducedByEditor, "refutes", nil),
	})
	assert.Equal(t, "edit", out[0].ID)
}

func TestSelectEffectiveIsPermutationIndependent(t *testing.T) {
	items := []store.Finding{
		finding("a", "clm_1", store.ProducedByPipeline, "supports", at(1)),
		finding("b", "clm_1", store.ProducedByPipeline, "refutes", at(5)),
		finding("c", "clm_1", store.ProducedByEditor, "mixed", at(2)),
		finding("d", "clm_2", store.ProducedByPipeline, "unclear", nil),
		finding("e", "clm_2", store.ProducedByPipeline, "supports", nil),
		finding("f", "clm_3", store.ProducedByEditor, "supports", at(3)),
		finding("g", "clm_3", store.ProducedByEditor, "refutes", at(3)),
		finding("h", "clm_4", store.ProducedByPipeline, "supports", at(9)),
	}
	want := SelectEffective(items)
	require.Len(t, want, 4)
	assert.Equal(t, []string{"c", "e", "g", "h"}, ids(want))

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		shuffled := append([]store.Finding{}, items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, SelectEffective(shuffled))
	}
}

func TestSelectEffectiveOnFindingKeys(t *testing.T) {
	out := SelectEffective([]store.FindingKey{
		{ID: "k1", ClaimID: "clm_1", ProducedBy: store.ProducedByPipeline, UpdatedAt: at(1)},
		{ID: "k2", ClaimID: "clm_1", ProducedBy: store.ProducedByEditor, UpdatedAt: at(0)},
		{ID: "k3", ClaimID: "clm_2", ProducedBy: store.ProducedByPipeline},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "k2", out[0].ID)
	assert.Equal(t, "k3", out[1].ID)
}

func TestSelectEffectiveEmpty(t *testing.T) {
	assert.Empty(t, SelectEffective([]store.Finding(nil)))
}

func TestByClaimAndClaimStatus(t *testing.T) {
	byClaim := ByClaim([]store.Finding{
		finding("f1", "clm_1", store.ProducedByPipeline, "supports", at(1)),
		finding("f2", "clm_2", store.ProducedByEditor, "mixed", at(1)),
	})
	assert.Equal(t, "supported", ClaimStatus(byClaim["clm_1"].Verdict))
	assert.Equal(t, "unclear", ClaimStatus(byClaim["clm_2"].Verdict))
	assert.Equal(t, "refuted", ClaimStatus("refutes"))
	assert.Equal(t, "open", ClaimStatus(""))
}

func ids(items []store.Finding) []string {
	out := make([]string, 0, len(items))
	for _, f := range items {
		out = append(out, f.ID)
	}
	return out
}
