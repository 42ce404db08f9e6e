package receipt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

var issuedAt = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func chainOf(t *testing.T, n int) (store.Dossier, []store.Revision) {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	_, err := ms.InsertDossier(ctx, store.Dossier{DossierID: "dos_s1", StatementID: "s1"})
	require.NoError(t, err)

	clock := issuedAt
	w := ledger.NewWriter(ms, ledger.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	for i := 0; i < n; i++ {
		_, err := w.Append(ctx, ledger.Entry{
			DossierID:   "dos_s1",
			EntityType:  store.EntityClaim,
			EntityID:    "clm_1",
			Action:      store.ActionUpdate,
			DiffSummary: fmt.Sprintf("edit %d", i),
			ByRole:      store.RoleEditor,
		})
		require.NoError(t, err)
	}
	d, err := ms.GetDossier(ctx, "dos_s1")
	require.NoError(t, err)
	revs, err := ms.ListRevisions(ctx, "dos_s1", 0)
	require.NoError(t, err)
	return d, revs
}

func TestIssueParseAndCheck(t *testing.T) {
	secret := []byte("secret")
	d, revs := chainOf(t, 3)

	token, claims, err := IssueForHead(secret, d, issuedAt)
	require.NoError(t, err)
	assert.Equal(t, "dos_s1", claims.DossierID)
	assert.Equal(t, *d.LastRevisionHash, claims.Head)
	assert.EqualValues(t, 3, claims.Seq)

	parsed, err := Parse(secret, token)
	require.NoError(t, err)
	assert.Equal(t, claims, parsed)

	verdict := Check(parsed, revs, ledger.VerifyChain(revs, d.LastRevisionHash))
	assert.True(t, verdict.Holds)
	assert.True(t, verdict.Present)
	assert.Equal(t, 2, verdict.Position)
}

func TestReceiptSurvivesLaterAppends(t *testing.T) {
	secret := []byte("secret")
	d, _ := chainOf(t, 2)
	_, claims, err := IssueForHead(secret, d, issuedAt)
	require.NoError(t, err)

	// A longer ledger with the same first two revisions still contains the head.
	longer, revs := chainOf(t, 4)
	verdict := Check(claims, revs, ledger.VerifyChain(revs, longer.LastRevisionHash))
	assert.True(t, verdict.Holds)
	assert.Equal(t, 1, verdict.Position)
}

func TestCheckDetectsRewrittenHistory(t *testing.T) {
	d, revs := chainOf(t, 3)
	claims := Claims{DossierID: d.DossierID, Head: *d.LastRevisionHash, Seq: d.RevisionSeq, JTI: "j"}

	truncated := revs[:2]
	verdict := Check(claims, truncated, ledger.VerifyChain(truncated, truncated[1].Hash))
	assert.False(t, verdict.Present)
	assert.Equal(t, -1, verdict.Position)
	assert.False(t, verdict.Holds)

	edited := append([]store.Revision(nil), revs...)
	edited[1].DiffSummary = "quietly changed"
	verdict = Check(claims, edited, ledger.VerifyChain(edited, d.LastRevisionHash))
	assert.True(t, verdict.Present)
	assert.False(t, verdict.Chain.Valid)
	assert.False(t, verdict.Holds)
}

func TestParseRejectsForgery(t *testing.T) {
	d, _ := chainOf(t, 1)
	token, _, err := IssueForHead([]byte("secret"), d, issuedAt)
	require.NoError(t, err)

	_, err = Parse([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidReceipt)
	_, err = Parse([]byte("secret"), token+"x")
	assert.ErrorIs(t, err, ErrInvalidReceipt)
	_, err = Parse([]byte("secret"), "nodot")
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	unsigned, err := Issue([]byte("secret"), Claims{DossierID: "dos_s1"})
	require.NoError(t, err)
	_, err = Parse([]byte("secret"), unsigned)
	assert.ErrorIs(t, err, ErrInvalidReceipt, "claims without head are rejected")
}

func TestIssueRequiresSecretAndHead(t *testing.T) {
	d, _ := chainOf(t, 1)
	_, _, err := IssueForHead(nil, d, issuedAt)
	assert.ErrorIs(t, err, ErrNoSecret)

	d.LastRevisionHash = nil
	_, _, err = IssueForHead([]byte("secret"), d, issuedAt)
	assert.ErrorIs(t, err, ErrNoHead)
}
