// Package shuttle provides the cache and messaging layer shared by the workers of a loom.
//
// A Store combines a key-value cache of datasets with TTL based expiry and a publish/subscribe
// bus used to signal step progress across stages. Expiry is checked lazily: an expired entry is
// removed and reported as a miss on the next Get, so Get never returns an expired entry. Stores can
// additionally sweep expired entries in the background.
//
// Subscriptions are lazy sequences with a bounded lifetime. They can be rewound to replay every
// message of the topic generation they are attached to, and they end once the topic is closed,
// their context is done or the store is closed.
package shuttle
