// Package oauthflow drives the interactive Google authorization flow.
//
// A Controller opens the consent page in an external window (the system
// browser by default) and then waits for whichever comes first: a message
// from the CallbackServer reporting success or failure, or the window
// being reported closed. Both watchers run under one derived context and
// are joined before Authenticate returns.
//
// Outcomes are reported as an AuthFlowResult value rather than an error:
//
//	res := ctrl.Authenticate(ctx)
//	if !res.Success {
//		fmt.Println("login failed:", res.Error)
//	}
package oauthflow
