package realmwar

import (
	"fmt"

	"realmkeeper/internal/utils"
)

// Each line takes the killer mention then the victim mention.
var eliminationLines = []string{
	"🩸 The shadows claim %[2]s as %[1]s delivers a cursed blow!",
	"☠️ %[1]s's dark magic consumes %[2]s!",
	"🌑 %[2]s is lost to the abyss by %[1]s's hand!",
	"🦇 %[1]s unleashes a swarm of night creatures upon %[2]s!",
	"💀 %[2]s is devoured by the darkness summoned by %[1]s!",
	"🌪️ %[1]s's shadow storm obliterates %[2]s!",
	"🗡️ %[2]s falls to %[1]s's cursed blade!",
	"🔥 %[1]s incinerates %[2]s with hellfire!",
	"🌘 %[2]s fades into oblivion as %[1]s stands victorious!",
	"🕸️ %[1]s traps %[2]s in a web of nightmares!",
	"🕯️ %[1]s extinguishes %[2]s's hope!",
	"🌑 %[1]s banishes %[2]s to the realm of lost souls!",
}

func eliminationLine(r utils.Random, killerID, victimID string) string {
	line := eliminationLines[r.IntN(len(eliminationLines))]
	return fmt.Sprintf(line, "<@"+killerID+">", "<@"+victimID+">")
}
