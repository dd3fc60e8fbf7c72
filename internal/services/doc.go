// Package services holds the business-logic layer between the license
// gate and the HTTP transport. It translates gate statuses and typed
// errors into the response shapes the GUI consumes.
package services
