// Package contact gates the exchange of personal contact details between users.
//
// A requester asks for an owner's contact data; the payload is encrypted at
// rest with the keyring's current key and can only be revealed by the
// requester once the owner approved and before the request expires. Every
// state change and every reveal is written to the audit trail. Expired
// requests have their payload purged, not merely flagged.
package contact
