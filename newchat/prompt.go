package newchat

import (
	"fmt"
	"strings"

	"tripy/llm"
	"tripy/models"
)

type chatReply struct {
	Reply string `json:"reply" validate:"required,max=4000"`
}

const assistantSystem = `You are Tripy Guide, a friendly travel companion for one specific trip.
Answer questions about the itinerary, dining, activities, budget, logistics and local customs.
Ground every answer in the trip below. If the traveller wants to change the plan, tell them what to ask for in one sentence; you cannot change it yourself.`

func welcome(trip models.Trip) string {
	days := len(trip.Itinerary.Days)
	return fmt.Sprintf("Hello! I'm Tripy Guide, your companion for your %d-day trip to %s. "+
		"Ask me about your itinerary, places to eat, things to do, your budget or getting around. How can I help?",
		days, trip.Request.Destination)
}

// grounding summarises the trip for the assistant.
func grounding(trip models.Trip) string {
	var b strings.Builder
	req := trip.Request
	fmt.Fprintf(&b, "Trip to %s, %s to %s, %d travellers, %s style, budget %.2f %s.\n",
		req.Destination, req.StartDate, req.EndDate, req.GroupSize, req.PrimaryStyle, req.TotalBudget, req.Currency)
	if trip.Itinerary.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", trip.Itinerary.Summary)
	}
	for _, day := range trip.Itinerary.Days {
		fmt.Fprintf(&b, "Day %d (%s) %s:", day.DayIndex, day.Date, day.Theme)
		for _, sp := range day.Slots {
			for _, a := range sp.Activities {
				where := ""
				if a.Resolved() {
					where = " at " + a.Place.Name
				}
				fmt.Fprintf(&b, " [%s %s %s%s]", sp.Slot, a.StartTime, a.Description, where)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func chatPrompt(trip models.Trip, prior []llm.Message, text string) llm.PromptSpec {
	return llm.PromptSpec{
		Schema:      "chat_reply",
		System:      assistantSystem + "\n\n" + grounding(trip),
		Shape:       `{"reply": "your answer to the traveller"}`,
		History:     prior,
		User:        text,
		Temperature: 0.7,
	}
}
