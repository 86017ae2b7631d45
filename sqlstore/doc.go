// Package sqlstore keeps back-office users, per-resource grants and login
// attempt counters in the same database as the sessions.
//
// A [Store] implements cmsauth.UserProvider, cmsauth.PermissionSource and
// cmsauth.AttemptStore, so passing it to Builder.WithUserProvider wires all
// three. Tables come from db.Install.
package sqlstore
