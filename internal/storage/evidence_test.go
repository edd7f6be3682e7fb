package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finfold/reckon/internal/common"
	"github.com/finfold/reckon/internal/model"
)

func TestLinkRawEventNoOpOnReprocess(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveRawEvents(ctx, []model.RawEvent{testRawEvent("raw-l1"), testRawEvent("raw-l2")}))
			identityID := resolveIdentity(t, store, "co-1")

			link := model.IdentityLink{
				IdentityID: identityID,
				RawEventID: "raw-l1",
				Reason:     model.ReasonExactIDMatch,
				Confidence: 1.0,
			}
			require.NoError(t, store.LinkRawEvent(ctx, link))

			// Reprocessing the same raw event must not create a second link.
			link.Confidence = 0.5
			require.NoError(t, store.LinkRawEvent(ctx, link))

			// A different raw event is independent evidence and is retained.
			require.NoError(t, store.LinkRawEvent(ctx, model.IdentityLink{
				IdentityID: identityID,
				RawEventID: "raw-l2",
				Reason:     model.ReasonFuzzySettlementMatch,
				Confidence: 0.75,
			}))

			links, err := store.GetLinksByIdentity(ctx, identityID)
			require.NoError(t, err)
			require.Len(t, links, 2)
			for _, l := range links {
				if l.RawEventID == "raw-l1" {
					assert.Equal(t, 1.0, l.Confidence, "original evidence retained for audit")
				}
			}
		})
	}
}

func TestAddIdentityEdgeRejectsSelfLoop(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.AddIdentityEdge(context.Background(), model.IdentityEdge{
				FromIdentity: "id-1",
				ToIdentity:   "id-1",
				Kind:         model.EdgeKindSettles,
				Weight:       0.9,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrSelfLoopEdge)
		})
	}
}

func TestAddIdentityEdgeKeepsMaxWeight(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			edge := model.IdentityEdge{
				FromIdentity: "id-payout",
				ToIdentity:   "id-charge",
				Kind:         model.EdgeKindSettles,
				Weight:       0.8,
			}
			require.NoError(t, store.AddIdentityEdge(ctx, edge))

			// Weaker re-insert keeps the existing weight.
			edge.Weight = 0.3
			require.NoError(t, store.AddIdentityEdge(ctx, edge))

			edges, err := store.GetEdgesFrom(ctx, "id-payout")
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.Equal(t, 0.8, edges[0].Weight)

			// Stronger re-insert upgrades it.
			edge.Weight = 0.95
			require.NoError(t, store.AddIdentityEdge(ctx, edge))

			edges, err = store.GetEdgesFrom(ctx, "id-payout")
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.Equal(t, 0.95, edges[0].Weight)
		})
	}
}

func TestAddIdentityEdgeValidatesWeight(t *testing.T) {
	store := createTestStorage(t)

	err := store.AddIdentityEdge(context.Background(), model.IdentityEdge{
		FromIdentity: "a",
		ToIdentity:   "b",
		Kind:         model.EdgeKindSettles,
		Weight:       1.5,
	})
	assert.Error(t, err)
}
