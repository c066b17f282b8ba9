package config

// DefaultTasks is the built-in open-ended curriculum handed to agents when the
// config file supplies none. Tasks are deliberately multi-step and vague at
// the edges so the avatar's behavior stays varied between social interrupts.
func DefaultTasks() []Task {
	return []Task{
		{
			ID: "gather_wood_and_store",
			Description: "Gather basic wood resources near your starting area. " +
				"Chop a few trees, craft planks and sticks, and store the surplus " +
				"in a chest near the main base (craft and place one if missing). " +
				"Avoid destroying obviously player-built structures.",
		},
		{
			ID: "mine_stone_and_coal",
			Description: "Set up early-game mining. Find exposed stone or dig a " +
				"simple staircase mine, collect cobblestone and coal, and craft a " +
				"furnace for the base area if there is not already one.",
		},
		{
			ID: "smelt_iron_and_craft_tools",
			Description: "Upgrade the tech tree. Find and mine iron ore, smelt it " +
				"into ingots with a furnace and fuel, and craft at least one iron " +
				"pickaxe or sword if possible.",
		},
		{
			ID: "set_up_wheat_farm",
			Description: "Establish a small wheat farm near the base. Get seeds " +
				"from grass, till soil near water, plant, and fence and light the " +
				"plot for basic protection.",
		},
		{
			ID: "farm_to_table_cooking",
			Description: "Create a food pipeline. Hunt nearby animals, cook the " +
				"raw meat in a furnace or smoker, and store the cooked food in a " +
				"base chest or share it with nearby players.",
		},
		{
			ID: "build_starter_house",
			Description: "Build a compact wooden starter house near spawn with " +
				"walls, a roof, a door, lighting, and at least a chest and a " +
				"crafting table inside.",
		},
		{
			ID: "build_watchtower_with_ladder",
			Description: "Erect a simple watchtower near the base with a ladder " +
				"or staircase to climb and a small lit platform at the top.",
		},
		{
			ID: "organize_storage",
			Description: "Improve storage around the base. Inspect nearby chests " +
				"and regroup items by type into neat, category-based storage.",
		},
		{
			ID: "explore_and_light_caves",
			Description: "Craft a good number of torches, then carefully explore " +
				"nearby caves and dark areas, lighting them as you go.",
		},
		{
			ID: "fishing_and_feeding",
			Description: "Set up fishing as an alternate food source. Craft a rod " +
				"if needed, fish in nearby water, cook the catch, and store or " +
				"share it.",
		},
	}
}
