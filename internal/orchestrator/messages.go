package orchestrator

import (
	"fmt"
	"strings"
)

// User-facing explanations for each failure branch.
const (
	msgSynthesisFailed   = "Sorry, I couldn't build a tool for that. The capability is unavailable right now."
	msgLedgerBlocked     = "That capability was removed on purpose, so I won't recreate it."
	msgNoTool            = "Sorry, I don't have a tool for that."
	msgModelUnavailable  = "Sorry, I can't reach the language model right now. Please try again in a moment."
	msgMalformedToolCall = "Sorry, I got confused while preparing that request. Could you rephrase it?"
)

func validationMessage(tool, reason string) string {
	return fmt.Sprintf("I need a bit more information to use %s: %s. Could you clarify?", tool, reason)
}

func executionMessage(tool string) string {
	return fmt.Sprintf("Sorry, the %s tool failed while working on that. Please try again later.", tool)
}

func timeoutMessage(tool string) string {
	return fmt.Sprintf("The %s tool took too long and was stopped. Please try again.", tool)
}

// rawResultMessage is the answer when the result cannot be phrased by the model.
func rawResultMessage(tool, payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return fmt.Sprintf("%s finished without output.", tool)
	}
	return fmt.Sprintf("Result from %s:\n%s", tool, payload)
}
