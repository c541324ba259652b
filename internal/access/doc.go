// Package access decides which clients a principal may reach and what they
// may do there.
//
// Access comes from three sources: the admin flag, an active direct
// assignment, or, for supervisors, an active assignment held by an active
// supervisee. Supervision is followed one hop only.
//
// Every question can be answered two ways. The boolean checks
// (CanAccessClient and friends) read the store at call time and collapse any
// failure to false. BuildClientAccessFilter returns an Expr that selects the
// same clients inside a query, so listing endpoints need no post-filter:
//
//	ids, err := st.SelectClientIDs(ctx, ctl.BuildClientAccessFilter(p, "clients.id"))
//
// A Scope binds the checks to one request and loads its principal once.
package access
