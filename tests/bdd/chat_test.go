package bdd

import "github.com/cucumber/godog"

// godog run ./tests/bdd/featureFiles/chat_service.feature
// Use of godog CLI is deprecated, please use *testing.T instead.
// See https://github.com/cucumber/godog/discussions/478 for details.

func userIsLoggedInWithToken(arg1, arg2 string) error {
	return godog.ErrPending
}

func bothUsersHoldAnOpenWebsocketConnection() error {
	return godog.ErrPending
}

func userSendsMessageTo(arg1, arg2, arg3 string) error {
	return godog.ErrPending
}

func userReceivesEventCarryingContent(arg1, arg2 string) error {
	return godog.ErrPending
}

func userSeesConversationWithUnread(arg1, arg2 string, arg3 int) error {
	return godog.ErrPending
}

func userHasAnUnreadMessageFrom(arg1, arg2 string) error {
	return godog.ErrPending
}

func userMarksTheMessageRead(arg1 string) error {
	return godog.ErrPending
}

func userReceivesAReadReceipt(arg1 string) error {
	return godog.ErrPending
}

func userEditsTheMessageTo(arg1, arg2 string) error {
	return godog.ErrPending
}

func userDeletesTheNewerMessage(arg1 string) error {
	return godog.ErrPending
}

func thePreviewShowsTheOlderMessage() error {
	return godog.ErrPending
}

func userTriesToEditAForeignMessage(arg1, arg2 string) error {
	return godog.ErrPending
}

func userReceivesARejectedEvent(arg1 string) error {
	return godog.ErrPending
}

func userReceivesNothing(arg1 string) error {
	return godog.ErrPending
}

// InitializeScenario registers the conversation steps.
func InitializeScenario(ctx *godog.ScenarioContext) {
	ctx.Step(`^"([^"]*)" is logged in with token "([^"]*)"$`, userIsLoggedInWithToken)
	ctx.Step(`^both users hold an open websocket connection$`, bothUsersHoldAnOpenWebsocketConnection)
	ctx.Step(`^"([^"]*)" sends "([^"]*)" to "([^"]*)"$`, userSendsMessageTo)
	ctx.Step(`^"([^"]*)" receives a "([^"]*)" event carrying that content$`, userReceivesEventCarryingContent)
	ctx.Step(`^"([^"]*)" sees the conversation with "([^"]*)" with (\d+) unread message$`, userSeesConversationWithUnread)
	ctx.Step(`^"([^"]*)" has an unread message from "([^"]*)"$`, userHasAnUnreadMessageFrom)
	ctx.Step(`^"([^"]*)" marks the message read$`, userMarksTheMessageRead)
	ctx.Step(`^"([^"]*)" receives a "message_read" receipt for it$`, userReceivesAReadReceipt)
	ctx.Step(`^"([^"]*)" edits the message to "([^"]*)"$`, userEditsTheMessageTo)
	ctx.Step(`^"([^"]*)" deletes the newer message$`, userDeletesTheNewerMessage)
	ctx.Step(`^the conversation preview shows the older message$`, thePreviewShowsTheOlderMessage)
	ctx.Step(`^"([^"]*)" tries to edit a message authored by "([^"]*)"$`, userTriesToEditAForeignMessage)
	ctx.Step(`^"([^"]*)" receives a "rejected" event$`, userReceivesARejectedEvent)
	ctx.Step(`^"([^"]*)" receives nothing$`, userReceivesNothing)
}
