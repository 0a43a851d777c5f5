// Package notify fans task events out to connected clients.
//
// A Hub tracks live connections and the rooms they have joined. Rooms are
// named "user-<id>" and "team-<id>"; those names are part of the wire
// contract with clients.
//
// Delivery is best-effort and at-most-once per connected member of the
// target room at the moment of dispatch. There is no acknowledgment, retry
// or ordering guarantee. A connection whose Send fails or panics is logged
// and skipped; the remaining recipients still receive the message.
//
// Thread-safety model:
//   - Rooms are split across shards by FNV hash of the room name, each with
//     its own sync.RWMutex, so dispatches to different rooms do not contend.
//   - Each connection entry has its own mutex guarding its room set.
//   - Lock order is entry, then shard. Sends happen outside every lock.
package notify
