// Package security derives a configuration posture report: which protections
// are on and which settings weaken the deployment. The root package exposes it
// as cmsauth.SecurityReport.
package security
