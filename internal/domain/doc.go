// Package domain models floor occupancy readings and derives the occupancy view.
//
// # Data Source
//
// Readings originate from ESP32 boards placed on each library floor. A board
// periodically scans for nearby Wi-Fi devices and reports how many it saw,
// which floor it sits on, and when the scan happened. Readings reach the feed
// over MQTT, Kafka, or the manual submission endpoint, always as loosely typed
// JSON:
//
//	{"floor": "4", "count": 37, "timestamp": 1733332800000}
//
// # Reading Conventions
//
// Floor:
//
//	Either a string ("4") or a number (4). Numbers are rendered without a
//	fractional part, so 4 and "4" name the same floor. Blank strings are
//	treated as absent.
//
// Count:
//
//	Number of devices detected. Must be a finite, non-negative integer.
//	Strings such as "37" are rejected, matching what sensors actually send.
//
// Timestamp:
//
//	Epoch milliseconds of the scan. Must be a finite number; fractional
//	milliseconds are truncated.
//
// Records failing any rule are dropped by [Normalize]. A batch of bad records
// degrades to an empty or partial view, never an error.
//
// # Derivation
//
// Every feed update is recomputed from scratch:
//
//	feed state → Normalize → GroupByTimestamp → BuildTimelines
//	                       → ResolveSnapshots
//	Derived + focus → Project → ViewModel
//
// Buckets merge readings that share the exact same timestamp. Within a bucket,
// and for snapshot ties, the reading that appears later in the feed wins.
// The feed orders records by insertion sequence, which makes that rule
// deterministic.
//
// # Building Configuration
//
// The default building is Geisel Library: floors 1, 2, 4, 5, 6, 7, 8 (there is
// no public floor 3) with capacities taken from the posted seat counts:
//
//	1: 865 | 2: 1080 | 4: 80 | 5: 155 | 6: 440 | 7: 195 | 8: 165
package domain
