// Package tenant registers support bots and runs one long-poll connection
// per active tenant, feeding their updates into the gateway.
package tenant
