package bus

// Topic names are the contract between agents. Producers and consumers agree
// on these strings; payload shapes are documented per topic family.
const (
	TopicWearablesStandardized     = "ingest.wearables.standardized"
	TopicLabsStandardized          = "ingest.labs.standardized"
	TopicQuestionnaireStandardized = "ingest.questionnaire.standardized"

	TopicTwinUpdateRequested = "user.twin.update.requested"
	TopicTwinUpdated         = "user.twin.updated"

	TopicResearchImportCompleted = "knowledge.research.import.completed"
	TopicGraphUpdated            = "knowledge.graph.updated"

	TopicSimulationRequested = "simulation.vitality.requested"
	TopicSimulationCompleted = "simulation.vitality.completed"

	TopicProtocolGenerateRequested = "protocol.generate.requested"
	TopicProtocolGenerated         = "protocol.generated"
	TopicProtocolReviewRequested   = "protocol.review.requested"
	TopicProtocolReviewUpdated     = "protocol.review.updated"
)

// AllTopics lists every topic this deployment provisions at startup.
func AllTopics() []string {
	return []string{
		TopicWearablesStandardized,
		TopicLabsStandardized,
		TopicQuestionnaireStandardized,
		TopicTwinUpdateRequested,
		TopicTwinUpdated,
		TopicResearchImportCompleted,
		TopicGraphUpdated,
		TopicSimulationRequested,
		TopicSimulationCompleted,
		TopicProtocolGenerateRequested,
		TopicProtocolGenerated,
		TopicProtocolReviewRequested,
		TopicProtocolReviewUpdated,
	}
}
