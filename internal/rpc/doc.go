// Package rpc declares the StudyNote gRPC services by hand.
//
// Every request and response is a google.protobuf.Struct, so the services run
// on the stock proto codec without generated stubs. Field conventions:
//
//	Auth/SignUp, Auth/SignIn      {email, password}        -> session
//	Auth/RefreshToken             {refresh_token}          -> session
//	Auth/SignOut                  {refresh_token}          -> {}
//	Documents/Ping                {}                       -> {status}
//	Documents/AddDocument         {collection, fields}     -> {id}
//	Documents/UpdateDocument      {collection, id, fields} -> {}
//	Documents/DeleteDocument      {collection, id}         -> {}
//	Documents/LiveQuery           {collection, filter}     -> stream {documents}
//	Documents/ExportDocuments     {collection, filter}     -> {url}
//
// where session is {user_id, email, access_token, refresh_token} and filter
// is {field, value}.
package rpc
