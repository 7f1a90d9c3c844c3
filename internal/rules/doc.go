// Package rules implements the action rule table.
//
// A rule maps an action name, filtered by event name, to an optional UI
// navigation directive and an optional chained query. Action names come from
// three places:
//
//   - Action messages: the widget's action text, event "Button" and the like
//   - query responses: the response's query_id, event "ParquetScanResult" or
//     "QueryResult"
//   - accepted data changes: the changed key, event "DataChange"
//
// Chained statements are read from a data key or built from a template with
// ${data.<key>} references. Evaluation only reads the cache; it performs no I/O.
//
// Tables are validated when built: every referenced data key, push target and
// pop target must exist, and no chain of query_ids may loop back on itself.
package rules
