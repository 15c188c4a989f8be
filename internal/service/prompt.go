package service

import (
	"fmt"
	"strings"

	"storybook/internal/domain"

	"github.com/lithammer/dedent"
)

const storySystemPrompt = "Tu es un auteur d'histoires pour enfants. Tu réponds uniquement en JSON valide."

// sp formats a dedented template.
func sp(txt string, args ...any) string {
	return fmt.Sprintf(dedent.Dedent(strings.Trim(txt, "\n")), args...)
}

// BuildStoryPrompt builds the French instructions for one five-part story.
func BuildStoryPrompt(c domain.Character, theme domain.ThemeSelection) string {
	morale := "- Pas de morale spécifique requise"
	if theme.Morale != nil && strings.TrimSpace(*theme.Morale) != "" {
		morale = "- Morale/leçon à inclure : " + strings.TrimSpace(*theme.Morale)
	}

	trait, traitRule := "", "7. Le héros doit avoir un rôle actif dans l'aventure"
	if c.HasTrait() {
		traitRule = "7. Le trait de caractère du héros doit jouer un rôle dans l'aventure"
		trait = "\n- Trait de caractère : " + strings.ToLower(c.Emotion.Label())
	}

	return sp(`
		Tu es un auteur d'histoires pour enfants. Crée une histoire captivante et immersive adaptée à un enfant de %[1]d ans.

		PERSONNAGE PRINCIPAL :
		- Nom : %[2]s
		- Âge : %[1]d ans
		- Genre : %[3]s%[4]s

		ÉLÉMENTS DE L'HISTOIRE :
		- Mission principale : %[5]s
		- Lieu de l'aventure : %[6]s
		%[7]s

		INSTRUCTIONS PRÉCISES :
		1. L'histoire doit être divisée en exactement %[8]d parties, chacune avec un titre et un contenu
		2. La narration doit être adaptée à l'âge de l'enfant (%[1]d ans)
		3. Utilise un langage vivant et des descriptions immersives
		4. Chaque partie doit faire entre 4 et 6 phrases maximum
		5. Crée une aventure magique et positive qui captivera l'imagination de l'enfant
		6. Inclure des éléments de surprise et d'émerveillement
		%[9]s

		STRUCTURE OBLIGATOIRE DE LA RÉPONSE (format JSON uniquement) :
		[
		  {
		    "title": "Titre de la partie 1",
		    "content": "Contenu narratif de la partie 1"
		  },
		  {
		    "title": "Titre de la partie 2",
		    "content": "Contenu narratif de la partie 2"
		  },
		  ... jusqu'à la partie %[8]d
		]

		IMPORTANT :
		- Ta réponse DOIT être uniquement un tableau JSON valide sans autre texte
		- N'ajoute pas de commentaires ou d'explications, seulement le JSON
		- Chaque partie doit avoir une vraie progression narrative
		- Assure-toi que le texte est approprié pour un enfant de %[1]d ans
		`,
		c.Age,
		c.Name,
		c.Gender.Label(),
		trait,
		theme.FormattedMission(),
		theme.FormattedLocation(),
		morale,
		domain.StorySectionCount,
		traitRule,
	)
}
