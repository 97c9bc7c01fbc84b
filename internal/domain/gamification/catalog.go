package gamification

// DefaultCatalog is the built-in achievement set seeded into new
// organizations. IDs and OrganizationID are assigned at seeding time.
func DefaultCatalog() []AchievementDefinition {
	return []AchievementDefinition{
		{
			Key: "first_class", Name: "Primeira Aula", Description: "Completou sua primeira aula",
			Category: CategorySpecial, Criteria: Criteria{Type: CriteriaFirstClass, Target: 1},
			XPReward: 50, Rarity: RarityCommon,
		},
		{
			Key: "classes_10", Name: "Guerreiro Dedicado", Description: "Frequentou 10 aulas",
			Category: CategoryAttendance, Criteria: Criteria{Type: CriteriaTotalClasses, Target: 10},
			XPReward: 100, Rarity: RarityCommon,
		},
		{
			Key: "classes_50", Name: "Lutador Persistente", Description: "Frequentou 50 aulas",
			Category: CategoryAttendance, Criteria: Criteria{Type: CriteriaTotalClasses, Target: 50},
			XPReward: 250, Rarity: RarityUncommon,
		},
		{
			Key: "consecutive_7", Name: "Mestre da Consistência", Description: "Frequentou aulas por 7 dias consecutivos",
			Category: CategoryAttendance, Criteria: Criteria{Type: CriteriaConsecutiveDays, Target: 7},
			XPReward: 150, Rarity: RarityUncommon,
		},
		{
			Key: "mastered_1", Name: "Primeiro Domínio", Description: "Dominou sua primeira técnica",
			Category: CategoryTechnique, Criteria: Criteria{Type: CriteriaTechniquesMastered, Target: 1},
			XPReward: 75, Rarity: RarityCommon,
		},
		{
			Key: "mastered_10", Name: "Técnico Avançado", Description: "Dominou 10 técnicas",
			Category: CategoryTechnique, Criteria: Criteria{Type: CriteriaTechniquesMastered, Target: 10},
			XPReward: 200, Rarity: RarityRare,
		},
		{
			Key: "level_5", Name: "Subindo de Nível", Description: "Alcançou o nível 5",
			Category: CategoryProgression, Criteria: Criteria{Type: CriteriaLevelReached, Target: 5},
			XPReward: 100, Rarity: RarityUncommon,
		},
		{
			Key: "level_10", Name: "Guerreiro Experiente", Description: "Alcançou o nível 10",
			Category: CategoryProgression, Criteria: Criteria{Type: CriteriaLevelReached, Target: 10},
			XPReward: 300, Rarity: RarityRare,
		},
		{
			Key: "challenges_5", Name: "Desafiador", Description: "Completou 5 desafios",
			Category: CategoryChallenge, Criteria: Criteria{Type: CriteriaChallengesCompleted, Target: 5},
			XPReward: 125, Rarity: RarityCommon,
		},
		{
			Key: "perfect_week", Name: "Semana Perfeita", Description: "Completou todos os desafios de uma semana",
			Category: CategoryChallenge, Criteria: Criteria{Type: CriteriaPerfectWeek},
			XPReward: 200, Rarity: RarityRare,
		},
	}
}
