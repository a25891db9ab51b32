// Package omnidex provides a Go client for the omnidex hybrid retrieval
// orchestrator: keyword, vector/graph and generative backends queried in
// parallel and fused into one ranked response.
//
// Minimal setup wires the retrieval backends:
//
//	client, err := omnidex.New(ctx,
//	    omnidex.WithSolr("http://localhost:8983/solr", "documents"),
//	    omnidex.WithNeo4j("http://localhost:7474", "neo4j", "secret"),
//	)
//	defer client.Close()
//
//	res, _ := client.Ask(ctx, "", "what is raft")
//	for _, item := range res.Items {
//	    fmt.Println(item.ID, item.Score, item.Title)
//	}
//
// A generative backend adds narrative answers for conversational turns:
//
//	client, err := omnidex.New(ctx,
//	    omnidex.WithSolr("http://localhost:8983/solr", "documents"),
//	    omnidex.WithNeo4j("http://localhost:7474", "neo4j", "secret"),
//	    omnidex.WithOllama("http://localhost:11434", "llama3.2"),
//	    omnidex.WithTokenBudget(100_000, 2_000_000),
//	)
//
// Conversations live in process memory keyed by conversation ID: pass the ID
// returned by the first Ask to follow-up calls, and ClearConversation to
// drop one. Search is the stateless variant and remembers nothing.
package omnidex
