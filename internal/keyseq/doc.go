// Package keyseq allocates store keys for the failover queue and tracks which
// process owns each key sequence.
//
// # Keys
//
// A Key is 16 bytes: seqID (8B BE) | index (8B BE). Several sequences share
// one store without colliding:
//   - NewKey(0, 0)        directory of registered config keys
//   - NewKey(seq, 0)      config of sequence seq
//   - NewKey(seq, i>4)    queued items of sequence seq
//
// # Cursors
//
// A KeySequence owns a writer cursor and a reader cursor, both starting at
// ReservedKeys. Writers claim the next key with an atomic add; readers claim
// with a single compare-and-swap and never move past the writer cursor.
//
//	seq := keyseq.NewKeySequence(keyseq.NewSequenceAtFloor(1, owner))
//	k := seq.NextWriterKey()
//	for k := range seq.NextReaderKeys(100) {
//	    _ = k
//	}
//
// # Ownership
//
// Repository persists KeySequenceConfig entries with an expiry and keeps the
// directory. SingleKeySequenceSelector claims one sequence: it creates it,
// reuses its own claim, or takes over an expired/unowned one after a
// consistency check. Close hands the sequence back by clearing the owner.
package keyseq
