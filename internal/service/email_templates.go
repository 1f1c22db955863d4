package service

import "fmt"

func magicLinkEmailTemplate(magicURL, appName string) (string, string) {
	subject := fmt.Sprintf("Sign in to %s", appName)
	body := fmt.Sprintf(`Click this link to sign in to your account:
%s

This link expires in 15 minutes and can only be used once. Requesting a new
link invalidates this one.

If you didn't request this, ignore this email.

Best,
The %s Team`, magicURL, appName)

	return subject, body
}

func otpEmailTemplate(code, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s sign-in code", appName)
	body := fmt.Sprintf(`Your one-time sign-in code is:

%s

Enter it within 10 minutes. The code stops working after 5 wrong guesses.

If you didn't request this, ignore this email.

Best,
The %s Team`, code, appName)

	return subject, body
}

func welcomeEmailTemplate(username, profileURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi %s,

Your page is live. Share it anywhere:
%s

Add your first links from the dashboard.

Best,
The %s Team`, username, profileURL, appName)

	return subject, body
}
