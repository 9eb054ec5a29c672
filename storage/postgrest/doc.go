// Package postgrest implements storage.RecordStore against a Supabase or
// plain PostgREST endpoint.
//
// Rows are read with filtered GETs on the configured table, embeddings are
// written with PATCH ... ?id=eq.<id> and similarity search is delegated to
// a server-side function reached through /rpc/<name>, which receives
// query_embedding, match_threshold and match_count.
//
// pgvector columns come back as text literals; core.Vector decodes both
// that form and plain JSON arrays.
package postgrest
