package keys

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// TopicID identifies a gossip topic on the wire.
type TopicID [32]byte

// NetworkID separates independent deployments sharing a LAN.
type NetworkID [32]byte

// NewTopicID hashes a human readable topic name into its wire id.
func NewTopicID(name string) TopicID {
	return TopicID(blake3.Sum256([]byte(name)))
}

// NewNetworkID hashes a network slug into its wire id.
func NewNetworkID(slug string) NetworkID {
	return NetworkID(blake3.Sum256([]byte(slug)))
}

func (t TopicID) String() string {
	return hex.EncodeToString(t[:])
}

func (n NetworkID) String() string {
	return hex.EncodeToString(n[:])
}

// ServiceTag returns the first 8 bytes of the network id in hex, short
// enough to fit in an mDNS service name.
func (n NetworkID) ServiceTag() string {
	return hex.EncodeToString(n[:8])
}
