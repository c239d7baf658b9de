package stamper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dvm-project/dvmkit/pkg/models"
)

func TestMinerRaisesDifficulty(t *testing.T) {
	event := models.NewEvent("alice", models.KindJobRequestTextGeneration, "hello")
	event.AppendTag(models.TagTarget, "bob")
	event.Seal()

	miner := NewMiner(MinerParams{})
	mined, err := miner.RaiseDifficulty(context.Background(), event, 12)
	require.NoError(t, err)
	require.GreaterOrEqual(t, mined.Difficulty(), 12)
	require.True(t, mined.Verify())

	// same logical content, new proof and identifier
	require.Equal(t, event.Content, mined.Content)
	require.Equal(t, event.Kind, mined.Kind)
	require.NotEqual(t, event.ID, mined.ID)

	nonce := mined.TagValues(models.TagNonce)
	require.Len(t, nonce, 2)
	require.Equal(t, "12", nonce[1])

	// the input event is untouched
	require.True(t, event.Verify())
	require.Nil(t, event.TagValues(models.TagNonce))
}

func TestMinerKeepsSufficientProof(t *testing.T) {
	event := models.NewEvent("alice", models.KindJobRequestTextGeneration, "hello")
	event.Seal()

	miner := NewMiner(MinerParams{})
	mined, err := miner.RaiseDifficulty(context.Background(), event, 0)
	require.NoError(t, err)
	require.Same(t, event, mined)
}

func TestMinerReplacesOldNonce(t *testing.T) {
	event := models.NewEvent("alice", models.KindJobRequestTextGeneration, "hello")
	event.Seal()

	miner := NewMiner(MinerParams{})
	mined, err := miner.RaiseDifficulty(context.Background(), event, 8)
	require.NoError(t, err)

	remined, err := miner.RaiseDifficulty(context.Background(), mined, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, remined.Difficulty(), 10)

	nonceTags := 0
	for _, tag := range remined.Tags {
		if tag[0] == models.TagNonce {
			nonceTags++
		}
	}
	require.Equal(t, 1, nonceTags)
}

func TestMinerHonorsContextCancellation(t *testing.T) {
	event := models.NewEvent("alice", models.KindJobRequestTextGeneration, "hello")
	event.Seal()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	miner := NewMiner(MinerParams{})
	_, err := miner.RaiseDifficulty(ctx, event, 60)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
