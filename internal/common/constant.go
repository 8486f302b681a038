package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// NotesCollection is the document collection holding user notes.
const NotesCollection = "notes"
