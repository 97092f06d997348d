// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"context"
	"testing"
)

func TestProxy_ReleaseMovesChunkToPurge(t *testing.T) {
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("hello"), 0)}, false)

	out, _, _ := b.Receive(context.Background(), receiver, false, 0)
	proxy := out[0].Proxy

	if _, status := proxy.Chunk(); status != StatusOK {
		t.Fatalf("expected a live proxy to resolve its chunk, got status %v", status)
	}

	proxy.Release()

	if b.hold.Len() != 0 {
		t.Fatalf("expected hold to be empty after release, has %d entries", b.hold.Len())
	}
	if b.purge.Len() != 1 {
		t.Fatalf("expected the released chunk to land in purge, purge has %d entries", b.purge.Len())
	}
	if _, status := proxy.Chunk(); status != StatusReset {
		t.Fatalf("expected a released proxy to report StatusReset, got %v", status)
	}
}

func TestProxy_RetainRequiresMatchingReleases(t *testing.T) {
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("hello"), 0)}, false)

	out, _, _ := b.Receive(context.Background(), receiver, false, 0)
	proxy := out[0].Proxy
	proxy.Retain()

	proxy.Release() // drops one of two references
	if b.purge.Len() != 0 {
		t.Fatal("expected the chunk to stay held while a retained reference remains")
	}

	proxy.Release() // drops the last reference
	if b.purge.Len() != 1 {
		t.Fatal("expected the chunk to move to purge once the last reference is released")
	}
}

func TestProxy_FullCascadeReleasesOutOfOrder(t *testing.T) {
	// Dois chunks empréstáveis entram em hold na ordem 1, 2. O receptor
	// libera o proxy 2 primeiro: como o proxy 1 ainda bloqueia a frente de
	// hold, sweepHold não pode avançar. Quando o proxy 1 finalmente libera,
	// a cascata deve varrer ambas as entradas de uma vez.
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("first"), 0), newFakeHeap([]byte("second"), 5)}, false)

	out, _, err := b.Receive(context.Background(), receiver, false, 0)
	if err != nil || len(out) != 2 {
		t.Fatalf("expected both chunks delivered in one receive, got %+v (err=%v)", out, err)
	}
	p1, p2 := out[0].Proxy, out[1].Proxy

	p2.Release()
	if b.purge.Len() != 0 {
		t.Fatal("expected purge to stay empty while the front-of-hold entry is still unreleased")
	}
	if b.hold.Len() != 2 {
		t.Fatal("expected both entries to remain parked in hold")
	}

	p1.Release()
	if b.hold.Len() != 0 {
		t.Fatalf("expected the cascade to drain both entries once the blocker released, hold has %d", b.hold.Len())
	}
	if b.purge.Len() != 2 {
		t.Fatalf("expected both chunks to land in purge, got %d", b.purge.Len())
	}
}

func TestProxy_MetadataAlwaysPreReleased(t *testing.T) {
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("data"), 0), newFakeEOS(4)}, false)

	out, _, err := b.Receive(context.Background(), receiver, false, 0)
	if err != nil || len(out) != 2 {
		t.Fatalf("expected data+eos delivered, got %+v (err=%v)", out, err)
	}

	// O metadado já entra held+released; a entrada de dados ainda bloqueia
	// sweepHold, então hold deve reter as duas até o proxy de dados liberar.
	if b.hold.Len() != 2 {
		t.Fatalf("expected the data entry to block the metadata entry in hold, got %d", b.hold.Len())
	}

	out[0].Proxy.Release()
	if b.hold.Len() != 0 {
		t.Fatalf("expected the cascade to sweep the pre-released metadata entry too, hold has %d", b.hold.Len())
	}
	if b.purge.Len() != 2 {
		t.Fatalf("expected both entries in purge, got %d", b.purge.Len())
	}
}

func TestProxy_DestroyNeutralizesPendingProxies(t *testing.T) {
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("hello"), 0)}, false)

	out, _, _ := b.Receive(context.Background(), receiver, false, 0)
	proxy := out[0].Proxy

	if err := b.Destroy(sender); err != nil {
		t.Fatalf("unexpected error destroying beam: %v", err)
	}

	if _, status := proxy.Chunk(); status != StatusReset {
		t.Fatalf("expected a proxy from a destroyed beam to report StatusReset, got %v", status)
	}

	// Release on a neutralized proxy must be a safe no-op.
	proxy.Release()
}

func TestProxy_SeqIsMonotonic(t *testing.T) {
	b, sender, receiver := newTestBeam(0)
	b.Send(sender, []Chunk{newFakeHeap([]byte("a"), 0), newFakeHeap([]byte("b"), 1)}, false)

	out, _, _ := b.Receive(context.Background(), receiver, false, 0)
	if out[0].Proxy.Seq() >= out[1].Proxy.Seq() {
		t.Fatalf("expected strictly increasing proxy sequence numbers, got %d then %d", out[0].Proxy.Seq(), out[1].Proxy.Seq())
	}
}
