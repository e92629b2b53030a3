// Package authsdk is the Go client for the CraftHub auth service and the
// home of its wire types. The server encodes responses with the same
// structs, so both sides agree on field names.
//
// Typical use:
//
//	client := authsdk.NewSDKClient("https://auth.crafthub.example")
//	session, err := client.SignIn(ctx, "ana@example.com", password)
//	var challenge *authsdk.TwoFactorRequiredError
//	if errors.As(err, &challenge) {
//		session, err = client.VerifyTwoFactor(ctx, authsdk.VerifyTwoFactorRequest{
//			UserID: challenge.UserID,
//			Code:   code,
//		})
//	}
//	me, err := session.Me(ctx)
package authsdk
