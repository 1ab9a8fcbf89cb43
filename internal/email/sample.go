package email

// SampleSender is the sender of the bundled demo email.
const SampleSender = "jennifer@company.com"

// SampleBody is a demo email that exercises every routing tier.
const SampleBody = `Subject: Q1 Deliverables and Team Meeting

Hi team,

I need everyone to complete the following by end of March:

1. Sarah - Please finalize the marketing analysis report by March 20th. This is critical for our board presentation.

2. The engineering team should review and approve the new API documentation. Not sure exactly when, but ideally before the end of the quarter.

3. Mike, can you schedule a team retrospective meeting? Maybe sometime in the first week of April?

4. We also need someone to update the client database, but I haven't decided who yet.

Let me know if you have any questions.

Best,
Jennifer
Manager, Product Team`

// Sample returns the demo email.
func Sample() Message {
	return Message{From: SampleSender, Body: SampleBody}
}
