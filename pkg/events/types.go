// Package events announces a node's catalog to its peers over COMMS.
package events

import "github.com/morezero/datatype-introspection/pkg/datatype"

// AnnouncementType is the message data type name under which announcements are
// published and subscribed.
const AnnouncementType = "protocol.CatalogAnnouncement"

// CatalogAnnouncement is published periodically so peers can compare catalogs
// without querying every type.
type CatalogAnnouncement struct {
	Node             string             `json:"node"`
	MessageSignature datatype.Signature `json:"messageSignature"`
	ServiceSignature datatype.Signature `json:"serviceSignature"`
	MessageCount     int                `json:"messageCount"`
	ServiceCount     int                `json:"serviceCount"`
	Timestamp        string             `json:"timestamp"`
}

// Agrees reports whether both per-kind aggregates and counts match other.
func (a *CatalogAnnouncement) Agrees(other *CatalogAnnouncement) bool {
	return a.MessageSignature == other.MessageSignature &&
		a.ServiceSignature == other.ServiceSignature &&
		a.MessageCount == other.MessageCount &&
		a.ServiceCount == other.ServiceCount
}
