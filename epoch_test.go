package kvcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEpochGCRetireRunsImmediatelyWithNoActiveReader(t *testing.T) {
	g := NewEpochGC()
	ran := false
	g.Retire(func() { ran = true })
	require.True(t, ran)
}

func TestEpochGCRetireDefersUntilReaderExits(t *testing.T) {
	g := NewEpochGC()
	token := g.Enter()
	ran := false
	g.Retire(func() { ran = true })
	require.False(t, ran, "must not free while a reader from this epoch is still active")
	g.Exit(token)
	require.True(t, ran, "must free once the last reader of the epoch exits")
}

func TestEpochGCAdvanceSeparatesReadersIntoDistinctEpochs(t *testing.T) {
	g := NewEpochGC()
	tokenOld := g.Enter()
	g.Advance()
	ran := false
	g.Retire(func() { ran = true }) // retired against the new epoch
	require.True(t, ran, "retirement targets the current epoch, not the old reader's")
	g.Exit(tokenOld)
}

func TestEpochGCMultipleReadersAllMustExit(t *testing.T) {
	g := NewEpochGC()
	t1 := g.Enter()
	t2 := g.Enter()
	ran := false
	g.Retire(func() { ran = true })
	g.Exit(t1)
	require.False(t, ran, "one of two readers still active")
	g.Exit(t2)
	require.True(t, ran)
}
